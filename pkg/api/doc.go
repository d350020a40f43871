// Package api exposes the subscription engine over HTTP.
//
// Routes are registered on a gorilla/mux router by Handlers.RegisterRoutes:
//
//	POST /admin/subscriptions/commands            super_admin
//	GET  /admin/subscriptions/{tenant_id}         super_admin
//	GET  /admin/subscriptions/{tenant_id}/ledger  super_admin
//	GET  /tenants/{tenant_id}/access              service, super_admin
//	GET  /tenants/{tenant_id}/gate                service, super_admin
//	POST /internal/jobs/renewals                  service
//	POST /internal/jobs/expirations               service
//
// The command endpoint takes {action, tenant_id, ...} where action is one of
// provision, extend, markPaid, update, setAutoRenew or cancel, and answers
// {success, record?, error?}. Validation failures are 400 with error.field
// set, unknown tenants 404, and storage failures 500 without details.
//
// Handlers hold no business rules. Every mutation goes through
// billing.Service, and a successful one drops the tenant from the access
// cache so the next check sees the new state.
//
// The job endpoints return the run summary. A run with per-tenant failures
// is still 200 with the failures listed in failed. A renewal run whose
// candidate listing or expiration step failed answers 500 with the same
// summary and the step errors listed in errors. A run that could not start
// because another holds the lock is 409.
package api
