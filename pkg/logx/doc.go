// Package logx configures bulksend's structured logging on top of zerolog.
//
// Console output is human readable with a short caller; the optional file
// sink writes JSON lines. Service.Apply swaps level, sinks and recipient
// redaction at runtime so config reloads take effect without a restart.
package logx
