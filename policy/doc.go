// Package policy restricts which service operations activities may call.
// A nil *Policy allows everything.
package policy
