package decompose

// planPrompt is the prompt template for spec decomposition.
const planPrompt = `Break this specification into work units that independent
coding agents can execute, grouped into waves. Units inside one wave run fully
in parallel; a unit that depends on another must be placed in a later wave.

Specification:
%s

Return ONLY a JSON object with this exact structure (no other text):
{
  "units": [
    {
      "id": "short-kebab-case-id",
      "name": "Short unit name",
      "role": "implementer|tester|documenter",
      "instructions": "Complete, self-contained instructions for the agent",
      "estimated_minutes": 15,
      "paths": ["src/auth/", "docs/auth.md"]
    }
  ],
  "waves": [
    ["first-unit", "second-unit"],
    ["depends-on-first"]
  ]
}

Rules:
- Every unit id appears in exactly one wave.
- Units in the same wave must not depend on each other and must not list
  overlapping paths.
- paths must cover every file or directory the unit will touch; two units
  that need the same file belong in different units or different waves.
- instructions must stand alone: the agent sees nothing but them.
- Prefer fewer, larger units over many tiny ones.`
