// Package yagna is the control-plane client for the two supervised daemons.
//
// Client speaks to the network daemon's REST API (identity, activities,
// agreements, usage, invoices and payments). YagnaCLI and ProviderCLI wrap the
// daemons' command line interfaces, which print JSON when invoked with
// --json. Callers only see the typed results; wire formats stay here.
package yagna
