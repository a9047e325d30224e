// Package sensor defines the single-shot distance sensor abstraction used by
// the command handler. A Ranger performs one blocking measurement per call and
// reports the raw distance together with the range status code of the device.
// Concrete drivers live in infra and register themselves in the driver
// registry under a type name used by the configuration.
package sensor
