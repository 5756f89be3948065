// Package tcp accepts newline-delimited JSON from network sensors.
//
// The protocol is as plain as it looks: a sensor opens a TCP
// connection and writes one JSON object per line. Anything that can
// open a socket can feed the bridge, which is the point - ESP32 and
// Arduino firmware stays trivial.
package tcp
