// Package storage provides the persistence contracts for taskwarden.
//
// The package defines two narrow interfaces, UserStore and TaskStore, plus the
// records they exchange. Backend packages (memory, sqlite) implement both
// behind the combined Store interface. The service layer depends only on these
// contracts, so the relational engine itself stays an external collaborator.
package storage
