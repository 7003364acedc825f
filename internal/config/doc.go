// Package config provides configuration loading, merging, and path management for kitchen.
//
// # Configuration Loading
//
// Load merges configuration from several sources, later ones overriding
// earlier ones:
//
//  1. A .env file in the working directory (joho/godotenv; variables that
//     are already set are left alone)
//  2. Global config (~/.config/kitchen/kitchen.json or kitchen.jsonc)
//  3. Project config (kitchen.json[c] and .kitchen/kitchen.json[c])
//  4. KITCHEN_CONFIG file
//  5. KITCHEN_CONFIG_CONTENT inline JSON
//  6. Environment variables
//
// Files are JSON or JSONC; comments and trailing commas are stripped with
// tidwall/jsonc before decoding.
//
// # Variable Interpolation
//
// Configuration values support two placeholders:
//   - {env:VAR_NAME} expands to the environment variable
//   - {file:path} expands to the file contents, resolved against the
//     directory of the config file (~/ is the home directory)
//
// # Environment Overrides
//
//   - ANTHROPIC_API_KEY, OPENAI_API_KEY, ARK_API_KEY fill provider keys
//     that are not set in files
//   - ARK_MODEL_ID sets the ARK endpoint id
//   - KITCHEN_MODEL and KITCHEN_SMALL_MODEL select models
//   - KITCHEN_STORAGE_DIR moves the data directory
//
// # Session Timings
//
// The "session" object carries the page-session machine timings in
// milliseconds, e.g.
//
//	{
//	  "model": "anthropic/claude-sonnet-4-20250514",
//	  "session": {"tokensDebounceMs": 600, "placeholdersDebounceMs": 500}
//	}
//
// # Paths
//
// GetPaths follows the XDG base directory layout with a "kitchen"
// subdirectory under each root.
package config
