// Package httpapi is the operator front end: an HTML form to start a job,
// a live status page, and the JSON endpoints both of them poll.
//
// Every route except /healthz requires the shared access token, passed as
// the "token" query/form value, an "Authorization: Bearer" header or an
// "X-Access-Token" header.
package httpapi
