// Package report records the outcome of a batch run.
//
// Every URL a run touches yields an Outcome. Failed outcomes are written to
// the failures file (failures.json by default) as a JSON array so a later
// "records sync" can fold them back into the ledger. The file is written
// atomically and tagged with the run id that also appears in the logs.
package report
