// Package rtl supervises rtl_433 decoder processes.
//
// Each configured radio runs one rtl_433 instance whose JSON stdout is
// decoded into raw radio events. The stderr stream doubles as a
// diagnostic channel: librtlsdr's known failure messages are mapped to
// human-readable status strings ("No Device Found", "USB Busy") so the
// radio's status entity explains silence instead of just reporting it.
package rtl
