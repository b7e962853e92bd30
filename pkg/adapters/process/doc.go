// Package process binds allow-listed external commands to skills.
//
// Each configured process becomes a skill of the same name. Entering a
// state bound to it starts the command; the state's options are passed as
// BONSAI_OPT_<KEY> environment variables, never as arguments, so chart
// values cannot inject flags. The skill ends with SUCCESS on exit code 0 and
// ERROR.exit otherwise. Leaving the state kills the command.
//
// Reserved options: timeout (ERROR.timeout once elapsed) and output_slot
// (stdout is stored in that memory slot, decoded as JSON when possible).
package process
