// Package logger builds zap sugared loggers with a console encoder and
// carries them through context.Context.
//
// Components receive their logger explicitly; the context helpers exist for
// the command layer, where a named logger follows a request or a run.
package logger
