// Package demo generates simulated MQTT traffic so the shell can be tried
// without a broker.
//
// The generator produces a mix of sensor readings, device status changes,
// energy meter samples, alerts, and an occasional $SYS counter, using a
// seeded random source so runs can be reproduced.
package demo
