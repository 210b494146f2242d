package helpers

// ConfigOption is one argument to a constructor that takes a variable list of options. The
// constructor passes them to ApplyOptions.
type ConfigOption[T any] interface {
	Configure(*T) error
}

// OptionFunc adapts a function to ConfigOption. Packages usually return it from their With...
// functions as their own named option type:
//
//	type Option helpers.ConfigOption[Thing]
//
//	func WithSize(n int) Option {
//		return helpers.OptionFunc[Thing](func(t *Thing) error { t.size = n; return nil })
//	}
type OptionFunc[T any] func(*T) error

func (f OptionFunc[T]) Configure(target *T) error { return f(target) }

// ApplyOptions configures target with each option in order, stopping at the first error. Nil
// options are ignored.
//
// The options parameter has its own type U so that a caller can pass a slice of a named option
// type such as the Option above without converting it.
func ApplyOptions[T any, U ConfigOption[T]](target *T, options ...U) error {
	for _, o := range options {
		if any(o) == nil {
			continue
		}
		if err := o.Configure(target); err != nil {
			return err
		}
	}
	return nil
}
