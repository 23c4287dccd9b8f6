// Package hashring implements a consistent-hash ring: members are placed
// at many points on a circle and a key maps to the first member clockwise
// of the key's own point, so that adding or removing a member remaps only
// a proportional fraction of the key space.
package hashring

import (
	"crypto/md5"
	"fmt"
	"sort"
)

// Points per member on the circle.  Each md5 digest yields three points.
const pointsPerMember = 40

type point uint32

type Ring struct {
	circle       map[point]string
	sortedPoints []point
}

// This builds a ring over the given members.  Member strings are hashed as
// given; callers wanting weighted placement can repeat a member.
func New(members []string) *Ring {
	ring := &Ring{
		circle: make(map[point]string),
	}

	for _, member := range members {
		for i := 0; i < pointsPerMember; i++ {
			digest := md5.Sum([]byte(fmt.Sprintf("%s-%d", member, i)))
			for j := 0; j < 3; j++ {
				p := pointAt(digest[j*4 : j*4+4])
				ring.circle[p] = member
				ring.sortedPoints = append(ring.sortedPoints, p)
			}
		}
	}

	sort.Slice(ring.sortedPoints, func(i, j int) bool {
		return ring.sortedPoints[i] < ring.sortedPoints[j]
	})

	return ring
}

// This returns the member owning key, or "" for an empty ring.
func (r *Ring) Member(key string) string {
	if len(r.circle) == 0 {
		return ""
	}
	return r.circle[r.sortedPoints[r.pos(key)]]
}

// Requires a non-empty ring.
func (r *Ring) pos(key string) int {
	digest := md5.Sum([]byte(key))
	target := pointAt(digest[0:4])

	points := r.sortedPoints
	i := sort.Search(len(points), func(i int) bool { return points[i] > target })
	if i == len(points) {
		// Wrapped around the circle.
		return 0
	}
	return i
}

func pointAt(b []byte) point {
	return point(b[3])<<24 | point(b[2])<<16 | point(b[1])<<8 | point(b[0])
}
