// Package sensors registers the sensor drivers available to the service.
//
// Importing the package for side effects makes the "vl53l0x" and "fake"
// driver types resolvable through sensor.New.
package sensors
