// Package availability decides when devices are online or offline.
//
// Sensors only ever transmit; there is no way to ask one if it is
// alive. Presence is therefore inferred: hearing a device makes it
// online, and a periodic sweep marks it offline once its silence
// exceeds the threshold for its channel. Radio sensors get a generous
// threshold because battery devices report on slow, drifting cycles;
// TCP sensors get a tight one because they are mains-powered and on
// the local network.
package availability
