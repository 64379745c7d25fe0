// Package auth issues and verifies installer tokens for the commissioning
// API.
//
// Tokens are HS256 JWTs signed with security.jwt.secret. They carry a
// subject and one of three roles:
//
//	viewer     mesh:read
//	installer  mesh:read, mesh:commission
//	admin      mesh:read, mesh:commission, mesh:reset
//
// There is no user database: tokens are minted offline with
//
//	graylogic-mesh -issue-token alice -role installer
//
// and validated by signature only.
package auth
