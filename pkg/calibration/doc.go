// Package calibration defines the Looking Glass display calibration model.
// It contains:
//
//   - Calibration: the twelve values a display reports, in the
//     {"name": {"value": n}} layout used by HoloPlay.js and the USB blob
//   - ForShader: the derived values a lenticular shader consumes
//
// Providers hand back raw JSON. This package is only used when a caller wants
// to look inside it (inspect command, daemon shader endpoint, command bridge
// result detection).
package calibration
