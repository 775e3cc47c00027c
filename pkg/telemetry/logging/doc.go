// Package logging builds the structured loggers used across certwatch.
//
// Loggers are plain *slog.Logger values. New picks a JSON or text handler,
// parses the level and wraps the handler twice:
//
//   - RedactAttr hides secret material. Values of keys such as "password" or
//     "private_key" are replaced, and PEM private key blocks are stripped from
//     any string value, so a key store accidentally logged as an error detail
//     never reaches the output.
//   - ContextHandler appends attributes stored in the context with WithAttrs
//     or WithRequestID when a record is logged through the *Context methods.
//
// # Usage
//
//	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
//	if err != nil {
//	    return err
//	}
//	slog.SetDefault(logger)
//
//	ctx = logging.WithRequestID(ctx, id)
//	logger.InfoContext(ctx, "Request served", "status", 200)
package logging
