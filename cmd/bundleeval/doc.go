// Package main hosts the bundleeval CLI.
//
// The run command prepares a run and re-executes this binary once per worker
// through the hidden worker command. Recover and status read the output of
// earlier runs, and the config and strategies commands help set a run up.
// The heavy lifting lives in internal packages; commands here only parse
// flags, build loggers, and render results.
package main
