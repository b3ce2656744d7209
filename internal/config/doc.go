// Package config loads, normalizes, and validates yanode configuration.
//
// It supplies defaults, expands user paths (including tilde shortcuts), reads
// TOML files, and honours environment fallbacks such as YAGNA_APPKEY and
// YAGNA_AUTOCONF_ID_SECRET. Configuration is read once when the node starts;
// nothing in the running node reloads it.
package config
