package quality

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jordigilh/devctx-mcp/internal/models"
)

func TestQuality(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Quality Guardian Suite")
}

func entity(id, kind, name, file string, start int, end *int) models.CodeEntity {
	return models.CodeEntity{
		EntityID:      id,
		Kind:          models.EntityKind(kind),
		Name:          name,
		QualifiedName: name,
		FilePath:      file,
		LineStart:     start,
		LineEnd:       end,
	}
}

func loc(n int) *int { return &n }

var _ = Describe("detectLongFunctions", func() {
	It("does not flag a function exactly 50 lines long", func() {
		entities := []models.CodeEntity{
			entity("f1", "function", "fifty", "a.py", 1, loc(51)), // 51-1 = 50
		}
		issues := detectLongFunctions("proj-1", entities)
		Expect(issues).To(BeEmpty())
	})

	It("flags a 51-line function as medium", func() {
		entities := []models.CodeEntity{
			entity("f1", "function", "fiftyone", "a.py", 1, loc(52)), // 52-1 = 51
		}
		issues := detectLongFunctions("proj-1", entities)
		Expect(issues).To(HaveLen(1))
		Expect(issues[0].Severity).To(Equal(models.SeverityMedium))
	})

	It("escalates severity at the high and critical thresholds", func() {
		entities := []models.CodeEntity{
			entity("f1", "function", "high", "a.py", 1, loc(102)),     // 101 lines
			entity("f2", "function", "critical", "a.py", 1, loc(202)), // 201 lines
		}
		issues := detectLongFunctions("proj-1", entities)
		Expect(issues).To(HaveLen(2))
		Expect(issues[0].Severity).To(Equal(models.SeverityHigh))
		Expect(issues[1].Severity).To(Equal(models.SeverityCritical))
	})

	It("skips entities missing a line_end", func() {
		entities := []models.CodeEntity{
			entity("f1", "function", "unbounded", "a.py", 1, nil),
		}
		Expect(detectLongFunctions("proj-1", entities)).To(BeEmpty())
	})
})

var _ = Describe("detectCircularDependencies", func() {
	It("finds a two-entity import cycle and classifies it high severity", func() {
		entities := []models.CodeEntity{
			entity("a", "module", "a", "a.py", 1, nil),
			entity("b", "module", "b", "b.py", 1, nil),
		}
		relations := []models.CodeRelation{
			{SourceID: "a", TargetID: "b", Kind: models.RelationImports},
			{SourceID: "b", TargetID: "a", Kind: models.RelationImports},
		}
		issues := detectCircularDependencies("proj-1", entities, relations)
		Expect(issues).To(HaveLen(1))
		Expect(issues[0].Severity).To(Equal(models.SeverityHigh))
	})

	It("does not emit an issue for an acyclic import graph", func() {
		entities := []models.CodeEntity{
			entity("a", "module", "a", "a.py", 1, nil),
			entity("b", "module", "b", "b.py", 1, nil),
		}
		relations := []models.CodeRelation{
			{SourceID: "a", TargetID: "b", Kind: models.RelationImports},
		}
		Expect(detectCircularDependencies("proj-1", entities, relations)).To(BeEmpty())
	})

	It("deduplicates cycles sharing the same vertex set", func() {
		entities := []models.CodeEntity{
			entity("a", "module", "a", "a.py", 1, nil),
			entity("b", "module", "b", "b.py", 1, nil),
			entity("c", "module", "c", "c.py", 1, nil),
		}
		relations := []models.CodeRelation{
			{SourceID: "a", TargetID: "b", Kind: models.RelationImports},
			{SourceID: "b", TargetID: "c", Kind: models.RelationImports},
			{SourceID: "c", TargetID: "a", Kind: models.RelationImports},
		}
		issues := detectCircularDependencies("proj-1", entities, relations)
		Expect(issues).To(HaveLen(1))
	})
})

var _ = Describe("detectGodClasses", func() {
	It("flags a class over the base method/loc threshold as medium", func() {
		entities := []models.CodeEntity{
			entity("c1", "class", "Big", "a.py", 1, loc(100)),
		}
		for i := 0; i < 16; i++ {
			m := entity("m"+string(rune('a'+i)), "method", "m", "a.py", 1, loc(2))
			parent := "c1"
			m.ParentID = &parent
			entities = append(entities, m)
		}
		issues := detectGodClasses("proj-1", entities)
		Expect(issues).To(HaveLen(1))
		Expect(issues[0].Severity).To(Equal(models.SeverityMedium))
	})

	It("does not flag a small class", func() {
		entities := []models.CodeEntity{
			entity("c1", "class", "Small", "a.py", 1, loc(20)),
		}
		Expect(detectGodClasses("proj-1", entities)).To(BeEmpty())
	})
})

var _ = Describe("detectTightCoupling", func() {
	It("flags an entity whose fan-in exceeds the medium threshold", func() {
		var entities []models.CodeEntity
		var relations []models.CodeRelation
		entities = append(entities, entity("target", "function", "target", "a.py", 1, loc(5)))
		for i := 0; i < 11; i++ {
			src := "caller" + string(rune('a'+i))
			entities = append(entities, entity(src, "function", src, "a.py", 1, loc(2)))
			relations = append(relations, models.CodeRelation{SourceID: src, TargetID: "target", Kind: models.RelationCalls})
		}
		issues := detectTightCoupling("proj-1", entities, relations)
		found := false
		for _, iss := range issues {
			if iss.EntityID != nil && *iss.EntityID == "target" {
				found = true
				Expect(iss.Severity).To(Equal(models.SeverityMedium))
			}
		}
		Expect(found).To(BeTrue())
	})
})
