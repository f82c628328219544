// Package credentials stores the backend API key and injects it into
// outgoing requests.
//
// Keys live in one of three stores:
//   - EnvStore reads an environment variable (read-only)
//   - FileStore keeps a 0600 file
//   - KeyringStore uses the operating system keychain
//
// The transport authorizes requests with the stored key:
//
//	store := &credentials.KeyringStore{Service: "clawd", User: "openai"}
//	transport := credentials.NewTransport(ctx, store, nil)
//	// every request now carries "Authorization: Bearer <key>"
package credentials
