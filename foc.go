// Package foc provides the shared value types used by the sensorless
// field-oriented-control building blocks in this module: the state
// observer with PLL (package sto), the feed-forward voltage generator
// (package feedforward) and their collaborators.
package foc

// Version of the foc module.
const Version = "0.1.0"

// AlphaBeta is a pair of s16 components in the stationary two-phase
// stator reference frame (Clarke frame).
type AlphaBeta struct {
	Alpha int16
	Beta  int16
}

// QD is a pair of s16 components in the rotating reference frame
// aligned with the rotor flux (Park frame).
type QD struct {
	Q int16
	D int16
}
