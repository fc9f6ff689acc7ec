// Package solver implements gradient descent methods with explicit
// optimizer state, wrapped so that they can be JSON serialized into
// configuration files.
//
// A Method never owns the weights it updates. Each call to Step takes
// a weight tree, a gradient tree, and the optimizer State, and returns
// a new weight tree and a new State, leaving its inputs unmodified.
// Because a step is a pure function of (weights, gradients, state),
// the same gradients always produce the same update, no matter where
// the gradients were computed.
package solver

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/samuelfneumann/gotd/network"
)

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam    Type = "Adam"
	RMSProp Type = "RMSProp"
	Vanilla Type = "Vanilla"
)

// Method computes weight updates from gradients. Init returns the
// zeroed optimizer state for a weight tree, holding one moment tree
// per slot named by Slots. Step computes a single update, returning
// the updated weights and the next optimizer state.
type Method interface {
	Init(params network.Params) *State
	Slots() []string
	Step(params, grads network.Params, state *State) (network.Params, *State,
		error)
}

// Solver wraps solver Methods so that they can be JSON marshalled and
// unmarshalled.
type Solver struct {
	Method `json:"-"`
	Type
	Config
}

// newSolver returns a new solver with the given type and configuration.
func newSolver(t Type, c Config) (*Solver, error) {
	if !c.ValidType(t) {
		return nil, fmt.Errorf("newSolver: invalid solver type %v for "+
			"configuration %T", t, c)
	}
	solver := Solver{Type: t, Config: c}
	solver.Method = solver.Config.Create()

	return &solver, nil
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (s *Solver) UnmarshalJSON(data []byte) error {
	config, typeName, err := unmarshalConfig(
		data,
		"Type",
		"Config",
		map[string]reflect.Type{
			string(Vanilla): reflect.TypeOf(VanillaConfig{}),
			string(RMSProp): reflect.TypeOf(RMSPropConfig{}),
			string(Adam):    reflect.TypeOf(AdamConfig{}),
		})
	if err != nil {
		return err
	}

	s.Type = typeName
	s.Config = config
	s.Method = s.Config.Create()

	return nil
}

// unmarshalConfig uses reflection to unmarshall a Config into its
// concrete type. Both the Config and its Type are returned.
func unmarshalConfig(data []byte, typeJsonField, valueJsonField string,
	customTypes map[string]reflect.Type) (Config, Type, error) {
	m := map[string]interface{}{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, "", err
	}

	typeName := m[typeJsonField].(string)
	var value Config
	if ty, found := customTypes[typeName]; found {
		value = reflect.New(ty).Interface().(Config)
	}

	valueBytes, err := json.Marshal(m[valueJsonField])
	if err != nil {
		return nil, "", err
	}

	if err = json.Unmarshal(valueBytes, &value); err != nil {
		return nil, "", err
	}
	concreteValue := reflect.ValueOf(value).Elem().Interface().(Config)

	return concreteValue, Type(typeName), nil
}

// Config implements a solver Method configuration and can be used to
// create the Methods they describe.
type Config interface {
	Create() Method

	// ValidType returns whether a specific Solver type can be created
	// with the Config
	ValidType(Type) bool
}

// checkStep returns an error describing the first structural problem
// with the arguments to a Step call
func checkStep(method Method, params, grads network.Params,
	state *State) error {
	if err := params.CheckCompatible(grads); err != nil {
		return fmt.Errorf("gradients do not match weights: %v", err)
	}
	if state == nil {
		return fmt.Errorf("no optimizer state")
	}
	if err := state.CheckCompatible(method.Slots(), params); err != nil {
		return fmt.Errorf("optimizer state does not match weights: %v", err)
	}
	return nil
}
