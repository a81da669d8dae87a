// Package sheens provides specification-driven message-processing machinery.
//
// The core code is in package 'core', and some command-line tools are in `cmd`.
//
// See https://github.com/coppice-labs/reactor/blob/master/README.md for more.
package sheens
