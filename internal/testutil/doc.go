// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing tables and canned model responses. They are
// not intended for production usage.
package testutil
