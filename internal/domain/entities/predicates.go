package entities

// System predicates. The numbering follows the entity schema of the
// platform: 2xxx entity attributes, 3xxx statement metadata, 4xxx object
// qualifiers, 5xxx cancellation metadata, 6xxx merges.
const (
	PredicateEntityType              Tid = 2001
	PredicateEntityName              Tid = 2002
	PredicateEntityDescription       Tid = 2003
	PredicateEntityCreationTimestamp Tid = 2004
	PredicateMemberOf                Tid = 2012

	PredicateStatementAuthor        Tid = 3001
	PredicateStatementTimestamp     Tid = 3002
	PredicateStatementEditorialNote Tid = 3003

	PredicateObjectLang     Tid = 4001
	PredicateObjectSequence Tid = 4002
	PredicateObjectFrom     Tid = 4003
	PredicateObjectUntil    Tid = 4004

	PredicateCancelledBy               Tid = 5001
	PredicateCancellationTimestamp     Tid = 5002
	PredicateCancellationEditorialNote Tid = 5003

	PredicateMergedInto         Tid = 6001
	PredicateMergedBy           Tid = 6002
	PredicateMergeTimestamp     Tid = 6003
	PredicateMergeEditorialNote Tid = 6004
)

// Entity types.
const (
	TypePerson       Tid = 107
	TypeLanguage     Tid = 110
	TypeWork         Tid = 113
	TypeOrganization Tid = 115
	TypeDocument     Tid = 120
)
