// Package sysmon samples the bridge host's own health.
//
// Bridges run headless on shelves and in lofts; when one misbehaves
// the first question is always "how is the box doing". The collector
// answers it by feeding CPU, memory, disk, temperature and uptime
// readings through the normal event pipeline, so the bridge appears in
// Home Assistant as just another device.
package sysmon
