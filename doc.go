// Package medvault is the privacy-preserving consent and proof core of a
// healthcare-record interoperability platform. It is a library invoked by an
// HTTP layer; it owns no wire format of its own.
//
// Three services collaborate:
//
//   - KeyVault custodies patient private keys and document data keys under
//     two-tier envelope encryption (PBKDF2-derived KEKs, AES-256-GCM) rooted
//     in one process-wide master key.
//   - ProofEngine lets a patient prove a medical fact (condition, age
//     threshold, allergy) to a verifier without disclosing the fact, via
//     Poseidon hash commitments bound to random challenges.
//   - EmergencyConsentOrchestrator grants time-boxed, scope-limited record
//     access under dual medical authorization when normal consent cannot be
//     obtained, minting signed temporary credentials.
//
// # Quick start
//
//	store, err := sqlite.Open("medvault.db")
//	// ...
//	vault, err := medvault.NewKeyVault(ctx,
//	    medvault.WithMasterKeyProvider(provider),
//	    medvault.WithRecordStore(store),
//	    medvault.WithLogger(logger),
//	)
//	engine, err := medvault.NewProofEngine(vault)
//	orchestrator, err := medvault.NewEmergencyConsentOrchestrator(vault, roster)
//
// Persistence, audit logging, staff-roster checks and next-of-kin contact are
// external collaborators behind interfaces; see RecordStore, AuditLogger,
// StaffRoster and KinNotifier. In-memory implementations for testing live in
// testing.go, durable ones under providers/.
package medvault
