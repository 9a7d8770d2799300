// Package httpclient builds authenticated JSON requests against a REST API
// base URL and provides the shared HTTP client used for Canvas calls.
//
// Use [NewRequestBuilder] with the API base URL and an optional auth provider:
//
//	builder, err := httpclient.NewRequestBuilder(cfg.Canvas.BaseURL, nil, provider)
//	if err != nil {
//		return err
//	}
//	req, err := builder.Build(ctx, http.MethodGet, "api", "v1", "courses", courseID)
//
// Path segments are escaped individually, so identifiers such as
// "sis_course_id:BL-CSCI-A101" are safe to pass through.
//
// [NewClient] returns a client with connection reuse and the given overall
// request timeout.
package httpclient
