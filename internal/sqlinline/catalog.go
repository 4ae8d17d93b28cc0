package sqlinline

// QSelectProducts keeps the order of the requested ids.
const QSelectProducts = `--sql 669e6caf-e017-433c-9731-440242353eff
select
  p.id,
  p.name,
  coalesce(p.description, ''),
  coalesce(p.tags, '{}'::text[])
from products p
where p.id = any($1::text[])
order by array_position($1::text[], p.id);
`

const QSelectBrandProfile = `--sql 18dd7a3e-229d-409a-ac22-110ea878bcdb
select
  coalesce(b.name, ''),
  coalesce(b.tone, ''),
  coalesce(b.forbidden_phrases, '{}'::text[])
from brand_profiles b
where b.user_id = $1::text;
`

const QSelectTemplate = `--sql d6b1161d-40b7-4a79-88d4-b1baf805d93d
select
  t.id,
  t.name,
  coalesce(t.style_directives, '{}'::text[]),
  coalesce(t.reference_image_urls, '{}'::text[]),
  coalesce(t.aspect_ratio, '')
from templates t
where t.id = $1::text
  and t.archived_at is null;
`
