package zset

import (
	"testing"

	gc "gopkg.in/check.v1"
)

// Hook up gocheck into go test, carrying forward the dependency on
// gopkg.in/check.v1 (kept here to exercise a second test idiom
// alongside testify, matching the variety seen across the pack).
func TestGoCheck(t *testing.T) { gc.TestingT(t) }

type ZSetSuite struct{}

var _ = gc.Suite(&ZSetSuite{})

func (s *ZSetSuite) TestEmptyRangeIsEmpty(c *gc.C) {
	z := NewZSet()
	c.Assert(z.List.FirstInRange(ScoreRange{Min: 0, Max: -1}), gc.IsNil)
}

func (s *ZSetSuite) TestBackwardTraversal(c *gc.C) {
	z := NewZSet()
	z.Add(1, "a")
	z.Add(2, "b")
	z.Add(3, "c")

	last := z.List.Last()
	c.Assert(last.Member, gc.Equals, "c")
	c.Assert(last.Prev().Member, gc.Equals, "b")
	c.Assert(last.Prev().Prev().Member, gc.Equals, "a")
	c.Assert(last.Prev().Prev().Prev(), gc.IsNil)
}
