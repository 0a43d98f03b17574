package velox

import "github.com/arisudev/velox/promise"

// chain composes middlewares into a single Next, wrapping terminal in
// registration order: the first middleware in the slice sees the request
// first on the way in and the result last on the way out (standard onion
// composition, built by wrapping from the innermost handler outward).
func chain(middlewares []Middleware, terminal Next) Next {
	next := terminal
	for i := len(middlewares) - 1; i >= 0; i-- {
		mw := middlewares[i]
		n := next
		next = func(req *Request) *promise.Promise[*Response] {
			return mw(req, n)
		}
	}
	return next
}
