// Package logx configures matchbot's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Runtime level/sink swaps on config reload
//
// Operator-facing alerts do not go through the logger; see internal/notify.
package logx
