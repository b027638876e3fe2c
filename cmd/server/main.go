// Command edgerules serves path-pattern based redirects, rewrites and
// response headers in front of a static site or an origin server.
package main

func main() {
	Execute()
}
