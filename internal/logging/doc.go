// Package logging is the zap setup shared by the repotrack commands and services.
//
// A Logger adds the correlation fields found in the context to every entry:
// the OpenTelemetry trace and span ids, the repository endpoint and index
// core (WithRepository), the tracking operation (WithOperation) and the
// request id (WithRequestID).
//
//	ctx = logging.WithRepository(ctx, &logging.Repository{Endpoint: "localhost:8080/8443", Core: "alfresco"})
//	ctx = logging.WithOperation(ctx, "GetTransactions")
//	logger.Info(ctx, "page fetched", zap.Int("transactions", n))
//
// Components that take a *zap.Logger get Logger.Underlying; their entries
// carry only the fields they add themselves.
//
// # Levels
//
// TraceLevel (-2) sits below Debug. The tracking client logs whole response
// bodies at trace and a window around a decode failure at debug, so the level
// also decides how much of a malformed payload is kept for diagnosis.
//
// # Outputs
//
// Entries go to stdout or stderr as JSON or console text, and optionally to
// an OpenTelemetry LoggerProvider through the otelzap bridge. Commands that
// print results on stdout log to stderr.
//
// # Redaction
//
// The local encoder hides fields whose name ends in a configured word
// (api_key, secret, token, ...) and string values matching the configured
// patterns, and scrubs matches out of messages. config.Secret values should
// still be logged with Secret, which keeps only the length.
//
// # Sampling
//
// Debug, Info and Warn each have their own budget per message and tick.
// Trace, Error and above are never sampled.
//
// # Testing
//
// NewTestLogger records every entry for assertions:
//
//	tl := logging.NewTestLogger()
//	client, _ := tracking.NewHTTPClient(url, dict, tracking.WithLogger(tl.Underlying()))
//	...
//	tl.AssertLogged(t, zapcore.ErrorLevel, "malformed payload")
//	tl.AssertNoSecrets(t, apiKey)
package logging
