// Package guard provides the Fiber middleware that screens requests before any
// business handler runs, and the token check protecting the security API.
package guard

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/ortelius/storefront-guard/internal/metrics"
	"github.com/ortelius/storefront-guard/internal/threat"
	"github.com/ortelius/storefront-guard/model"
	"go.uber.org/zap"
)

// Config tunes ThreatGuard
type Config struct {
	Scanner *threat.Scanner
	// Sink records upload rejections; scanner detections are recorded by the scanner itself
	Sink    threat.EventSink
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	// Skip bypasses the guard entirely
	Skip func(c *fiber.Ctx) bool
	// SkipBody leaves the body unscanned while path, query, headers and user agent are still checked
	SkipBody func(c *fiber.Ctx) bool
}

// ThreatGuard rejects requests whose user agent, headers, path, query or body match a
// threat pattern. Rejections carry a generic message only.
func ThreatGuard(cfg Config) fiber.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if cfg.Skip != nil && cfg.Skip(c) {
			return c.Next()
		}

		ctx := c.UserContext()
		source := c.IP()
		scanner := cfg.Scanner

		if v := scanner.CheckUserAgent(ctx, source, c.Get(fiber.HeaderUserAgent)); v.Threat {
			return reject(c, cfg.Metrics)
		}

		headers := make(map[string]string)
		for name, values := range c.GetReqHeaders() {
			headers[name] = strings.Join(values, ",")
		}
		if v := scanner.ScanHeaders(ctx, source, headers); v.Threat {
			return reject(c, cfg.Metrics)
		}

		if v := scanner.Scan(ctx, source, "path", pathSegments(c.Path())); v.Threat {
			return reject(c, cfg.Metrics)
		}

		if v := scanner.Scan(ctx, source, "query", c.Queries()); v.Threat {
			return reject(c, cfg.Metrics)
		}

		if cfg.SkipBody != nil && cfg.SkipBody(c) {
			return c.Next()
		}

		body, err := requestBody(c)
		if err != nil {
			logger.Warn("rejected request with unreadable body", zap.String("path", c.Path()), zap.Error(err))
			return reject(c, cfg.Metrics)
		}
		if body != nil {
			if v := scanner.Scan(ctx, source, "body", body); v.Threat {
				return reject(c, cfg.Metrics)
			}
		}

		if form, err := c.MultipartForm(); err == nil && form != nil {
			for field, files := range form.File {
				for _, fh := range files {
					if err := threat.ValidateUploadType(fh.Filename, fh.Header.Get(fiber.HeaderContentType)); err != nil {
						if cfg.Sink != nil {
							cfg.Sink.Record(ctx, model.NewSecurityEvent(model.EventValidationRejected, source, "upload."+field, "upload", fh.Filename))
						}
						return reject(c, cfg.Metrics)
					}
				}
			}
		}

		return c.Next()
	}
}

// pathSegments splits the decoded path into its non-empty segments. Route
// parameters are not resolved yet when the guard runs, so every segment is scanned.
// An undecodable path is scanned as sent.
func pathSegments(path string) []string {
	if decoded, err := url.PathUnescape(path); err == nil {
		path = decoded
	}
	segments := make([]string, 0, strings.Count(path, "/")+1)
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}

// requestBody returns the body in the shape the scanner walks: decoded JSON,
// form values, multipart values or the raw bytes. nil means no body.
func requestBody(c *fiber.Ctx) (interface{}, error) {
	ctype := strings.ToLower(c.Get(fiber.HeaderContentType))

	switch {
	case strings.HasPrefix(ctype, fiber.MIMEMultipartForm):
		form, err := c.MultipartForm()
		if err != nil {
			return nil, err
		}
		return form.Value, nil
	case len(c.Body()) == 0:
		return nil, nil
	case strings.HasPrefix(ctype, fiber.MIMEApplicationJSON):
		var payload interface{}
		if err := json.Unmarshal(c.Body(), &payload); err != nil {
			// scan what was sent; the handler rejects the syntax
			return c.Body(), nil
		}
		return payload, nil
	case strings.HasPrefix(ctype, fiber.MIMEApplicationForm):
		values := url.Values{}
		c.Request().PostArgs().VisitAll(func(key, value []byte) {
			values.Add(string(key), string(value))
		})
		return values, nil
	default:
		return c.Body(), nil
	}
}

func reject(c *fiber.Ctx, m *metrics.Metrics) error {
	m.RequestRejected()
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"message": "Invalid request",
	})
}
