// Package pagelogic compiles HTML pages annotated with reactive logic into
// scope-tree descriptors and runs them.
//
// # Markup
//
// Logic attributes start with a colon. :aka names the element's scope,
// :isolate cuts it off from its ancestors and any other :key declares a
// value. Expressions are written ${...} in attribute values and text:
//
//	<div :count="1" :double=${count * 2}>
//	  <p class="n" :class$odd=${count % 2 == 1}>Double: ${double}</p>
//	</div>
//
// # Pipeline
//
//  1. Parse: tree-sitter html and javascript grammars build a markup tree
//     with expression ASTs.
//  2. Compile: build the scope tree, qualify identifiers, resolve
//     references into dependency edges and generate a descriptor.
//  3. Run: load the descriptor into a reactive context, bind it to the
//     compiled markup and refresh.
//
// # Usage
//
//	e, err := pagelogic.New("pages.db", pagelogic.WithScriptsDir("scripts"))
//	if err != nil { ... }
//	defer e.Close()
//
//	ctx := context.Background()
//	err = e.CompileDirectory(ctx, "site")
//
//	q := e.Query()
//	diags, err := q.Diagnostics("site/index.html")
//
//	page, err := e.Boot(ctx, "site/index.html")
//	fmt.Println(page.HTML())
//
// # Incremental compilation
//
// [Engine.CompileFiles] detects unchanged pages via content hashing and skips
// them. A change to the helper scripts or global names recompiles every page.
//
// # Scripts
//
// Helper functions are written in Risor. A script publishes a function with
// export("name", fn); page expressions call it as a global.
package pagelogic
