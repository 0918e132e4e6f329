// Package password implements salted, deliberately slow password hashing.
//
// # Schemes
//
//   - [Bcrypt] is the default. Hashes use the standard $2a$/$2b$ encoding.
//   - [Argon2] produces PHC strings:
//
//     $argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Multi] hashes with one primary scheme and verifies any configured scheme
// by prefix, so stores seeded with older hashes keep working.
//
// Verification never panics on bad input: a malformed hash yields
// (false, err), and [Matches] folds that into a plain mismatch.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Enforce password policy (minimum length lives in the Engine).
//   - Import any other authcore package.
//   - Log plaintext passwords.
package password
