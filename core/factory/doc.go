// Package factory provides a small generic registry used to instantiate modules
// from configuration. Modules are defined by a type string and a map of raw
// settings. Factories decode the settings into typed structs and return the
// concrete implementation. Sensor drivers and metrics sinks are both built
// through it.
//
// Example usage:
//
//	reg := factory.NewRegistry[sensor.Ranger]()
//	reg.Register("fake", func(conf map[string]any) (sensor.Ranger, error) {
//	    var c struct{ DistanceMM uint16 `json:"distance_mm"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return newFake(c.DistanceMM), nil
//	})
//	r, err := reg.Create(factory.ModuleConfig{Type: "fake", Conf: map[string]any{"distance_mm": 120}})
package factory
