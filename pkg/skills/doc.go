// Package skills provides small generic skills that need no robot hardware.
//
// They are registered under their plain names by Register and are used by
// the command line tool and by tests.
package skills
