package pagelogic

import (
	"github.com/jward/pagelogic/internal/compiler"
	"github.com/jward/pagelogic/internal/render"
	"github.com/jward/pagelogic/internal/store"
)

// Public type aliases for internal types used in the Engine and QueryBuilder
// APIs. External consumers use these names; no conversion is needed.

type Store = store.Store
type PageRecord = store.Page
type ScopeRecord = store.Scope
type DiagnosticRecord = store.Diagnostic

type Result = compiler.Result
type Diagnostic = compiler.Diagnostic

type Page = render.Page
