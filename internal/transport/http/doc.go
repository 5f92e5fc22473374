// Package http implements the HTTP handlers of the data engine. Handlers
// are a thin layer over the engine service: they decode and validate the
// request, call the service, and render the result.
//
// # Routes
//
// Each handler exposes a chi sub-router through Routes():
//
//	/api/v1/datasets   DatasetHandler  upload, ingest, schema, preview,
//	                                   normalize, aggregate, flags, export
//	/api/v1/rules      RuleHandler     rule registry CRUD, export, import
//	/api/v1/jobs       JobHandler      background job status and cancel
//
// HealthHandler serves /healthz, /readyz and version information.
//
// # Responses
//
// Successful responses use the envelope
//
//	{"status": "success", "data": ...}
//
// Errors follow RFC 7807 Problem Details and carry an error_code:
//
//	{
//	    "type": "/errors/not-found",
//	    "title": "Not Found",
//	    "status": 404,
//	    "detail": "dataset not found: 1f3c",
//	    "error_code": "DATASET_NOT_FOUND",
//	    "trace_id": "..."
//	}
//
// Aggregation failures put the structured failure document under details,
// so clients receive error, error_id and the individual config errors.
//
// Exports and the rule export document are written bare with an
// attachment Content-Disposition.
package http
