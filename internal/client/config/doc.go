// Package config loads settings for the gophauth CLI client.
//
// Sources, later ones winning:
//
//  1. defaults (LoadDefaults)
//  2. a JSON file named by -c/-config
//  3. GOPHAUTH_* environment variables
//  4. command-line flags (-a server URL, -t request timeout)
package config
