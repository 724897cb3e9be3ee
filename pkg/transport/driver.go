package transport

import "fmt"

// New builds the Driver a parsed Spec describes.
func New(spec Spec) (Driver, error) {
	switch spec.Kind {
	case KindUDPIn:
		return NewUDPIn(spec), nil
	case KindUDPOut:
		return NewUDPOut(spec), nil
	case KindTCPOut:
		return NewTCPOut(spec), nil
	case KindSerial:
		return NewSerial(spec), nil
	default:
		return nil, fmt.Errorf("%q: %w: unhandled kind %v", spec.Raw, ErrInvalidSpec, spec.Kind)
	}
}
