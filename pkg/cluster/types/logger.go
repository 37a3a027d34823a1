package types

// Logger is the ambient logging capability every package in this module
// takes a dependency on, shaped after the teacher's definition.Logger so
// call sites read the same regardless of which concrete backend (see
// the logging package) is wired in.
type Logger interface {
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
	Fatalf(format string, v ...interface{})
}
