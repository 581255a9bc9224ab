// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package capture_test

import (
	"sync"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/canonical/sqlmatch/internal/capture"
	"github.com/canonical/sqlmatch/internal/typeinfo"
)

// Hook up gocheck into the "go test" runner.
func TestCapture(t *testing.T) { TestingT(t) }

type CaptureSuite struct{}

var _ = Suite(&CaptureSuite{})

type Address struct {
	ID       int
	Street   string
	District string
}

type Person struct {
	ID       int
	Name     string
	Address  Address
	internal bool
}

func (s *CaptureSuite) TestCaptureField(c *C) {
	reg := capture.NewRegistry()
	p, err := capture.Probe[Person](reg)
	c.Assert(err, IsNil)

	b, err := reg.Capture(&p.Name)
	c.Assert(err, IsNil)
	c.Check(b.Property, Equals, "Name")
	info, err := typeinfo.GetTypeInfo(Person{})
	c.Assert(err, IsNil)
	c.Check(b.Referent, Equals, info)

	// The first field shares the address of the probe itself.
	b, err = reg.Capture(&p.ID)
	c.Assert(err, IsNil)
	c.Check(b.String(), Equals, "Person.ID")
}

func (s *CaptureSuite) TestProbeIsCachedPerType(c *C) {
	reg := capture.NewRegistry()
	p1 := capture.MustProbe[Person](reg)
	p2 := capture.MustProbe[Person](reg)
	c.Check(p1, Equals, p2)

	other := capture.MustProbe[Person](capture.NewRegistry())
	c.Check(other == p1, Equals, false)
	_, err := reg.Capture(&other.Name)
	c.Check(err, ErrorMatches, `pointer of type \*string does not point into a probe`)
}

func (s *CaptureSuite) TestCaptureNestedStructIsWholeField(c *C) {
	reg := capture.NewRegistry()
	p := capture.MustProbe[Person](reg)

	b, err := reg.Capture(&p.Address)
	c.Assert(err, IsNil)
	c.Check(b.String(), Equals, "Person.Address")

	// A field of the nested struct is not a property of Person.
	_, err = reg.Capture(&p.Address.Street)
	c.Check(err, ErrorMatches, `pointer into probe "Person" is not an exported field`)
}

func (s *CaptureSuite) TestCaptureErrors(c *C) {
	reg := capture.NewRegistry()
	p := capture.MustProbe[Person](reg)

	_, err := reg.Capture(p.Name)
	c.Check(err, ErrorMatches, `need pointer to a probe field, got string`)

	_, err = reg.Capture(&p.internal)
	c.Check(err, ErrorMatches, `pointer into probe "Person" is not an exported field`)

	_, err = capture.Probe[int](reg)
	c.Check(err, ErrorMatches, `can only reflect struct type`)

	type empty struct{}
	_, err = capture.Probe[empty](reg)
	c.Check(err, ErrorMatches, `cannot probe zero-sized type "empty"`)
}

func (s *CaptureSuite) TestReferent(c *C) {
	reg := capture.NewRegistry()
	p := capture.MustProbe[Person](reg)

	ref, err := reg.Referent(p)
	c.Assert(err, IsNil)
	c.Check(ref.Name(), Equals, "Person")

	_, err = reg.Referent(&Person{})
	c.Check(err, ErrorMatches, `value of type \*capture_test.Person is not a probe`)
}

func (s *CaptureSuite) TestConcurrentProbe(c *C) {
	reg := capture.NewRegistry()
	var wg sync.WaitGroup
	probes := make([]*Address, 8)
	for i := range probes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			probes[i] = capture.MustProbe[Address](reg)
		}(i)
	}
	wg.Wait()
	for _, p := range probes {
		c.Check(p, Equals, probes[0])
	}
}
