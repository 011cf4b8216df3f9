// Package secretstore reads and writes OAuth2 client secrets.
//
// Three backends trade security against deployment effort:
//   - File: a 0600 file written atomically
//   - Env: a read-only environment variable, for platforms that inject secrets
//   - Keyring: the OS credential store (macOS Keychain, Windows Credential Manager, Secret Service)
//
// Secrets are read lazily on the first token acquisition, never at startup.
package secretstore
