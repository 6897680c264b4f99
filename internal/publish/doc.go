// Package publish pushes event text to the WordPress site.
//
// The target is a custom REST route (POST /wp-json/im/v1/update-event)
// authenticated with a WordPress application password. The plugin on the
// WordPress side stores the value on the configured page.
package publish
